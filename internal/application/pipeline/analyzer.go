package pipeline

import (
	"strings"
	"unicode"
)

// 依存标签的词法近似
const (
	// DepMark 从属连词 (because / since / as)
	DepMark = "mark"
	// DepAdvMod 疑问副词 (when)
	DepAdvMod = "advmod"
)

// Token 词法分析产出的单个词元
type Token struct {
	// Text 原文中的表面形式
	Text string
	// Lower 小写形式
	Lower string
	// Offset 在原文中的字节偏移
	Offset int
	// Dep 依存标签近似，无标签时为空
	Dep string
	// EntityCandidate 命名实体候选 (专有名词形态)
	EntityCandidate bool
}

// Analyzer 语言分析能力接口
// 产出带依存标签近似和实体候选标记的词元序列
type Analyzer interface {
	Analyze(text string) []Token
}

// LexicalAnalyzer 基于词法规则的分析器
// 用固定词表近似从属连词与疑问副词标注，用形态特征近似命名实体识别
type LexicalAnalyzer struct{}

// NewLexicalAnalyzer 创建词法分析器
func NewLexicalAnalyzer() *LexicalAnalyzer {
	return &LexicalAnalyzer{}
}

var depByWord = map[string]string{
	"because": DepMark,
	"since":   DepMark,
	"as":      DepMark,
	"when":    DepAdvMod,
}

// Analyze 切分文本为词元并标注
func (a *LexicalAnalyzer) Analyze(text string) []Token {
	tokens := make([]Token, 0, 8)
	pos := 0
	for pos < len(text) {
		// 跳过空白
		for pos < len(text) && isSpace(text[pos]) {
			pos++
		}
		start := pos
		for pos < len(text) && !isSpace(text[pos]) {
			pos++
		}
		if start == pos {
			break
		}
		word := text[start:pos]
		// 去除首尾标点，保留词内连字符 (如 COVID-19)
		trimmedLeft := strings.TrimLeftFunc(word, isPunct)
		offset := start + len(word) - len(trimmedLeft)
		trimmed := strings.TrimRightFunc(trimmedLeft, isPunct)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		tokens = append(tokens, Token{
			Text:            trimmed,
			Lower:           lower,
			Offset:          offset,
			Dep:             depByWord[lower],
			EntityCandidate: looksLikeEntity(trimmed, offset == 0),
		})
	}
	return tokens
}

// looksLikeEntity 判断词元是否具有专有名词形态
// 仅对含数字的字母数字组合和全大写缩写生效，避免把句首大写词误判为实体
func looksLikeEntity(word string, sentenceInitial bool) bool {
	if len(word) < 2 {
		return false
	}
	hasDigit := false
	hasLetter := false
	allUpper := true
	for _, r := range word {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
			if !unicode.IsUpper(r) {
				allUpper = false
			}
		}
	}
	if !hasLetter {
		return false
	}
	if hasDigit {
		return true
	}
	if allUpper && !sentenceInitial {
		return true
	}
	return allUpper && len(word) >= 3
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isPunct(r rune) bool {
	switch r {
	case '?', '!', '.', ',', ';', ':', '(', ')', '"', '\'', '[', ']':
		return true
	}
	return false
}
