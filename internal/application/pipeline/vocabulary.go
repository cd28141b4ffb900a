package pipeline

import (
	"strings"
)

// Vocabulary 医学领域词表
// 词条与命名实体识别的结果取并集，用于实体抽取
type Vocabulary struct {
	singles   map[string]struct{}
	compounds []string
}

// defaultVocabularyTerms 内置词表，含单词条目与复合短语
var defaultVocabularyTerms = []string{
	// 疾病
	"diabetes", "flu", "influenza", "cold", "covid-19", "pneumonia", "asthma",
	"bronchitis", "malaria", "hypertension", "cancer", "arthritis", "migraine",
	"tuberculosis", "hepatitis", "stroke", "anemia", "obesity", "depression",
	"heart disease", "lung cancer", "kidney disease", "high blood pressure",
	// 症状
	"fever", "cough", "headache", "fatigue", "nausea", "rash", "pain",
	"infection", "inflammation", "dizziness", "vomiting", "diarrhea",
	"shortness of breath", "chest pain", "sore throat", "blood sugar",
	// 治疗与药物
	"aspirin", "insulin", "antibiotics", "vaccine", "chemotherapy", "surgery",
	"paracetamol", "ibuprofen", "physiotherapy",
	// 病原与一般概念
	"virus", "viruses", "bacteria", "allergy", "allergies", "immune system",
}

// DefaultVocabulary 创建内置词表
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(defaultVocabularyTerms)
}

// NewVocabulary 按词条列表创建词表，复合短语与单词条目分开索引
func NewVocabulary(terms []string) *Vocabulary {
	v := &Vocabulary{singles: make(map[string]struct{}, len(terms))}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if strings.Contains(t, " ") {
			v.compounds = append(v.compounds, t)
		} else {
			v.singles[t] = struct{}{}
		}
	}
	return v
}

// entityMatch 一次实体命中及其在原文中的位置
type entityMatch struct {
	offset  int
	surface string
}

// Match 在文本中查找词表命中，保留原文表面大小写
// lower 必须是 text 的小写形式
func (v *Vocabulary) Match(text, lower string, tokens []Token) []entityMatch {
	matches := make([]entityMatch, 0, 4)

	// 单词条目按词元匹配
	for _, tok := range tokens {
		if _, ok := v.singles[tok.Lower]; ok {
			matches = append(matches, entityMatch{offset: tok.Offset, surface: tok.Text})
		}
	}

	// 复合短语按子串匹配并校验词边界
	for _, phrase := range v.compounds {
		from := 0
		for {
			idx := strings.Index(lower[from:], phrase)
			if idx < 0 {
				break
			}
			pos := from + idx
			if wordBoundary(lower, pos, len(phrase)) {
				matches = append(matches, entityMatch{offset: pos, surface: text[pos : pos+len(phrase)]})
			}
			from = pos + len(phrase)
		}
	}

	return matches
}

// wordBoundary 检查 [pos, pos+length) 两侧均非字母数字
func wordBoundary(s string, pos, length int) bool {
	if pos > 0 && isAlnum(s[pos-1]) {
		return false
	}
	end := pos + length
	if end < len(s) && isAlnum(s[end]) {
		return false
	}
	return true
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// retrievalStopWords 粗粒度实体提取时剔除的虚词
var retrievalStopWords = map[string]struct{}{
	"what": {}, "is": {}, "are": {}, "the": {}, "a": {}, "an": {}, "of": {},
	"for": {}, "to": {}, "in": {}, "on": {}, "do": {}, "does": {}, "did": {},
	"how": {}, "why": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"can": {}, "could": {}, "should": {}, "would": {}, "i": {}, "my": {},
	"me": {}, "you": {}, "it": {}, "and": {}, "or": {}, "with": {}, "about": {},
	"between": {}, "have": {}, "has": {}, "had": {}, "be": {}, "been": {},
	"get": {}, "there": {}, "some": {}, "any": {}, "tell": {}, "show": {},
}
