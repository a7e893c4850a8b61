package search

import (
	"math/rand/v2"
	"strings"
)

// SuggestionCount は一度に提示する質問例の数。
const SuggestionCount = 4

// curriculumPrompts はカリキュラムに沿った質問例。
var curriculumPrompts = []string{
	"Explain the concept of oxidation and reduction in Physical Sciences",
	"How do I solve quadratic equations using the quadratic formula?",
	"What are the main themes in Cry, the Beloved Country?",
	"Explain the process of photosynthesis and cellular respiration",
	"How do I calculate compound interest in Mathematical Literacy?",
	"What were the causes of the Anglo-Boer War in South African History?",
	"Explain the concept of supply and demand in Economics",
	"How do I analyze poetry for English Home Language?",
	"What is the difference between ionic and covalent bonding?",
	"Explain the concept of derivatives in Mathematics",
	"What are the main features of apartheid legislation?",
	"How do I solve trigonometric equations?",
	"Explain the concept of ecosystems and biodiversity",
	"What is the role of enzymes in biological processes?",
	"How do I write a persuasive essay for English?",
	"Explain the concept of electric circuits and Ohm's law",
	"What are the main economic systems and their characteristics?",
	"How do I solve systems of linear equations?",
	"Explain the concept of genetics and inheritance",
	"What were the key events of the Soweto Uprising?",
}

var motivationalTemplates = []string{
	"You're doing amazing, {name}! Every question brings you closer to success!",
	"Keep pushing forward, {name}! Your matric dreams are within reach!",
	"Brilliant work, {name}! Knowledge is your superpower!",
	"You've got this, {name}! Every study session counts!",
	"Outstanding effort, {name}! Your future self will thank you!",
	"Incredible dedication, {name}! Success is just around the corner!",
	"Phenomenal progress, {name}! You're building your bright future!",
	"Exceptional work, {name}! Your hard work will pay off!",
}

// CurriculumPrompts は質問例の一覧のコピーを返す。
func CurriculumPrompts() []string {
	out := make([]string, len(curriculumPrompts))
	copy(out, curriculumPrompts)
	return out
}

// SamplePrompts は質問例から重複なくSuggestionCount件を無作為に選ぶ。順序も毎回変わる。
func SamplePrompts() []string {
	perm := rand.Perm(len(curriculumPrompts))
	out := make([]string, 0, SuggestionCount)
	for _, i := range perm[:SuggestionCount] {
		out = append(out, curriculumPrompts[i])
	}
	return out
}

// MotivationalMessage は励ましのメッセージを無作為に1つ選び、名前を埋め込んで返す。
func MotivationalMessage(name string) string {
	tmpl := motivationalTemplates[rand.IntN(len(motivationalTemplates))]
	return strings.ReplaceAll(tmpl, "{name}", name)
}
