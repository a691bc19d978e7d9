package model

// Flow identifies which evaluation protocol a session runs
type Flow string

const (
	FlowComparison Flow = "comparison"
	FlowReview     Flow = "review"
)

// Phase is a stage of an evaluation session
type Phase string

const (
	PhaseComparison Phase = "comparison"
	PhaseSegment    Phase = "segment"
	PhaseWholistic  Phase = "wholistic"
	PhaseComplete   Phase = "complete"
)

// Slot is an anonymized position label within a comparison unit
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
	SlotC Slot = "C"
)

// Slots lists the comparison positions in display order
var Slots = [3]Slot{SlotA, SlotB, SlotC}

// Valid reports whether s is one of A, B or C
func (s Slot) Valid() bool {
	return s == SlotA || s == SlotB || s == SlotC
}

// ComparisonQuestion is the key of one criterion asked for every comparison unit
type ComparisonQuestion string

const (
	QuestionBackground  ComparisonQuestion = "bgConsistency"
	QuestionTransitions ComparisonQuestion = "transitions"
	QuestionCharacters  ComparisonQuestion = "characters"
	QuestionMotion      ComparisonQuestion = "motion"
	QuestionAesthetic   ComparisonQuestion = "aesthetic"
)

// ComparisonQuestions lists every criterion a comparison submit must answer
var ComparisonQuestions = []ComparisonQuestion{
	QuestionBackground,
	QuestionTransitions,
	QuestionCharacters,
	QuestionMotion,
	QuestionAesthetic,
}

// Store keys, one value per device namespace
const (
	KeyReviewProgress     = "evaluation_progress"
	KeyReviewData         = "evaluation_data"
	KeyComparisonProgress = "comparison_progress"
	KeyComparisonResults  = "comparison_results"
)

// SkippedComment marks a unit the evaluator chose to skip
const SkippedComment = "SKIPPED"
