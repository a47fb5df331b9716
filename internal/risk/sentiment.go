package risk

import "strings"

// Словарный анализ заголовков - запасной путь, когда сентимент
// провайдера недоступен (премиум эндпоинт). Оценка грубая, но
// устойчивая: доля позитивных слов среди всех полярных.

var positiveWords = []string{
	"beat", "beats", "surge", "surges", "rally", "rallies", "gain", "gains",
	"record", "upgrade", "upgraded", "strong", "growth", "profit", "bullish",
	"outperform", "exceeds", "soar", "soars", "jump", "jumps", "buyback",
	"dividend", "raise", "raises", "approval", "wins", "partnership",
}

var negativeWords = []string{
	"miss", "misses", "drop", "drops", "fall", "falls", "plunge", "plunges",
	"cut", "cuts", "downgrade", "downgraded", "weak", "loss", "losses",
	"bearish", "lawsuit", "probe", "investigation", "recall", "layoff",
	"layoffs", "warning", "warns", "fraud", "bankruptcy", "default", "slump",
}

// keywordSentiment возвращает bullish-процент [0,100] по заголовкам
// При отсутствии полярных слов - нейтральные 50
func keywordSentiment(headlines []string) float64 {
	var positive, negative int

	for _, headline := range headlines {
		lower := strings.ToLower(headline)
		for _, w := range positiveWords {
			if containsWord(lower, w) {
				positive++
			}
		}
		for _, w := range negativeWords {
			if containsWord(lower, w) {
				negative++
			}
		}
	}

	total := positive + negative
	if total == 0 {
		return 50
	}
	return float64(positive) / float64(total) * 100
}

// containsWord проверяет вхождение слова по границам,
// чтобы "cut" не находился внутри "executive"
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)

		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(text) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
