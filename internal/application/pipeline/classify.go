package pipeline

import (
	"strings"
)

// 分类是有优先级的规则级联而非打分模型，匹配顺序属于契约的一部分。
// 解释器与检索代理共用这一套关键词，避免两处各自维护后产生分歧。

// 查询类型的词法线索
var (
	comparativeWords = []string{"vs", "versus", "compare", "compared"}
	causalWords      = []string{"because", "since", "why"}
	causalPhrases    = []string{"due to", "caused by"}
	temporalPhrases  = []string{"how long"}
)

// intentKeywordSets 意图关键词组，按固定顺序求值，先命中者获胜
var intentKeywordSets = []struct {
	intent  Intent
	words   []string
	phrases []string
}{
	{IntentSymptoms, []string{"symptom", "symptoms", "sign", "signs", "feel", "feeling"}, nil},
	{IntentDiagnosis, []string{"diagnose", "diagnosis", "cause", "causes", "why", "reason"}, nil},
	{IntentTreatment, []string{"treat", "treats", "treated", "treatment", "treatments", "cure", "therapy", "medication"}, nil},
	{IntentPrevention, []string{"prevent", "prevention", "avoid", "protect"}, nil},
	{IntentInformation, []string{"definition", "information", "about"}, []string{"what is"}},
}

// ClassifyQueryType 判定查询类型
// 优先级: 比较 > 因果 > 时间 > 事实，首个命中即返回
func ClassifyQueryType(lower string, tokens []Token) QueryType {
	words := wordSet(tokens)

	if hasAnyWord(words, comparativeWords) {
		return QueryTypeComparative
	}
	if hasMarkDep(tokens) || hasAnyWord(words, causalWords) || hasAnyPhrase(lower, causalPhrases) {
		return QueryTypeCausal
	}
	if hasAdvModDep(tokens) || hasAnyPhrase(lower, temporalPhrases) {
		return QueryTypeTemporal
	}
	return QueryTypeFactual
}

// ClassifyIntent 判定查询意图
// 时间副词直接归为 information，其余按关键词组顺序匹配，无命中时默认 information
func ClassifyIntent(lower string, tokens []Token) Intent {
	if hasAdvModDep(tokens) || hasAnyPhrase(lower, temporalPhrases) {
		return IntentInformation
	}

	words := wordSet(tokens)
	for _, set := range intentKeywordSets {
		if hasAnyWord(words, set.words) || hasAnyPhrase(lower, set.phrases) {
			return set.intent
		}
	}
	return IntentInformation
}

func wordSet(tokens []Token) map[string]struct{} {
	words := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		words[t.Lower] = struct{}{}
	}
	return words
}

func hasAnyWord(words map[string]struct{}, candidates []string) bool {
	for _, c := range candidates {
		if _, ok := words[c]; ok {
			return true
		}
	}
	return false
}

func hasAnyPhrase(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func hasMarkDep(tokens []Token) bool {
	for _, t := range tokens {
		if t.Dep == DepMark {
			return true
		}
	}
	return false
}

func hasAdvModDep(tokens []Token) bool {
	for _, t := range tokens {
		if t.Dep == DepAdvMod {
			return true
		}
	}
	return false
}
