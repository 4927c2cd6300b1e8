package extractor

import "regexp"

// KeywordCategory 是一个财务关键词类别。
type KeywordCategory struct {
	Name    string
	Pattern *regexp.Regexp
}

// Categories 是固定的财务关键词类别列表，顺序即输出顺序。
var Categories = []KeywordCategory{
	{Name: "noi", Pattern: regexp.MustCompile(`(?i)\bNOI\b|net\s+operating\s+income`)},
	{Name: "cap_rate", Pattern: regexp.MustCompile(`(?i)\bcap(italization)?\.?\s+rates?\b`)},
	{Name: "rent_roll", Pattern: regexp.MustCompile(`(?i)\brent\s*roll`)},
	{Name: "financial_highlights", Pattern: regexp.MustCompile(`(?i)financial\s+(highlights|summary|overview)`)},
	{Name: "income_statement", Pattern: regexp.MustCompile(`(?i)income\s+statement|operating\s+statement|profit\s*(and|&)\s*loss`)},
	{Name: "cash_flow", Pattern: regexp.MustCompile(`(?i)cash[\s-]*flows?`)},
	{Name: "returns_analysis", Pattern: regexp.MustCompile(`(?i)returns?\s+analysis|investment\s+returns|cash[\s-]on[\s-]cash`)},
	{Name: "irr", Pattern: regexp.MustCompile(`(?i)\bIRR\b|internal\s+rate\s+of\s+return`)},
}

// matchCategories 返回文本命中的类别名，按 Categories 顺序。
func matchCategories(text string) []string {
	var matched []string
	for _, c := range Categories {
		if c.Pattern.MatchString(text) {
			matched = append(matched, c.Name)
		}
	}
	return matched
}
