package model

import "time"

// ComparisonAnswers holds the winning method id per criterion after de-anonymization
type ComparisonAnswers struct {
	BackgroundConsistency string `json:"backgroundConsistency"`
	Transitions           string `json:"transitions"`
	CharacterConsistency  string `json:"characterConsistency"`
	MotionSmoothness      string `json:"motionSmoothness"`
	ImageQualityAesthetic string `json:"imageQualityAesthetic"`
}

// Set stores the winner for the given question
func (a *ComparisonAnswers) Set(q ComparisonQuestion, methodID string) {
	switch q {
	case QuestionBackground:
		a.BackgroundConsistency = methodID
	case QuestionTransitions:
		a.Transitions = methodID
	case QuestionCharacters:
		a.CharacterConsistency = methodID
	case QuestionMotion:
		a.MotionSmoothness = methodID
	case QuestionAesthetic:
		a.ImageQualityAesthetic = methodID
	}
}

// Get returns the winner recorded for the given question
func (a ComparisonAnswers) Get(q ComparisonQuestion) string {
	switch q {
	case QuestionBackground:
		return a.BackgroundConsistency
	case QuestionTransitions:
		return a.Transitions
	case QuestionCharacters:
		return a.CharacterConsistency
	case QuestionMotion:
		return a.MotionSmoothness
	case QuestionAesthetic:
		return a.ImageQualityAesthetic
	}
	return ""
}

// ComparisonResult is the record of one submitted comparison unit
type ComparisonResult struct {
	ComparisonIndex int                         `json:"comparisonIndex"`
	Episode         string                      `json:"episode"`
	EpisodeIndex    int                         `json:"episodeIndex"`
	Timestamp       time.Time                   `json:"timestamp"`
	VideoA          string                      `json:"videoA"`
	VideoB          string                      `json:"videoB"`
	VideoC          string                      `json:"videoC"`
	Answers         ComparisonAnswers           `json:"answers"`
	RawAnswers      map[ComparisonQuestion]Slot `json:"rawAnswers"`
}

// ComparisonBatch is both the saved comparison payload and the relay body
type ComparisonBatch struct {
	EvaluatorID      string             `json:"evaluatorId"`
	Timestamp        time.Time          `json:"timestamp"`
	TotalComparisons int                `json:"totalComparisons"`
	Comparisons      []ComparisonResult `json:"comparisons"`
}

// ComparisonSnapshot is the resumable state of a comparison session.
// Units are stored verbatim because their random draws cannot be regenerated.
type ComparisonSnapshot struct {
	EvaluatorID            string             `json:"evaluatorId"`
	StartTime              time.Time          `json:"startTime"`
	Units                  []ComparisonUnit   `json:"comparisons"`
	CurrentComparisonIndex int                `json:"currentComparisonIndex"`
	Results                []ComparisonResult `json:"results"`
	TotalComparisons       int                `json:"totalComparisons"`
	LastSaveTime           time.Time          `json:"lastSaveTime"`
}

// SegmentEvaluation is the record of one rated or skipped segment task
type SegmentEvaluation struct {
	TaskIndex        int       `json:"taskIndex"`
	PaperID          string    `json:"paperId"`
	PaperName        string    `json:"paperName"`
	SectionID        string    `json:"sectionId"`
	SectionName      string    `json:"sectionName"`
	ClipFilename     string    `json:"clipFilename"`
	Rating           *int      `json:"rating"`
	FollowUpComments string    `json:"followUpComments"`
	Timestamp        time.Time `json:"timestamp"`
}

// Skipped reports whether the task was skipped rather than rated
func (e SegmentEvaluation) Skipped() bool {
	return e.Rating == nil
}

// WholisticEvaluation is the record of one method-level review
type WholisticEvaluation struct {
	PaperID         string         `json:"paperId"`
	PaperName       string         `json:"paperName"`
	Ratings         map[string]int `json:"ratings"`
	OverallComments string         `json:"overallComments"`
	Timestamp       time.Time      `json:"timestamp"`
}

// EvaluationData accumulates every answer of a review session
type EvaluationData struct {
	EvaluatorID          string                `json:"evaluatorId"`
	StartTime            time.Time             `json:"startTime"`
	SegmentEvaluations   []SegmentEvaluation   `json:"segmentEvaluations"`
	WholisticEvaluations []WholisticEvaluation `json:"wholisticEvaluations"`
	EndTime              *time.Time            `json:"endTime"`
}

// ProgressSnapshot is the resumable state of a review session
type ProgressSnapshot struct {
	EvaluationData             EvaluationData `json:"evaluationData"`
	CurrentPhase               Phase          `json:"currentPhase"`
	CurrentTaskIndex           int            `json:"currentTaskIndex"`
	CurrentPaperIndex          int            `json:"currentPaperIndex"`
	CurrentWholisticVideoIndex int            `json:"currentWholisticVideoIndex"`
	TotalTasks                 int            `json:"totalTasks"`
	TaskOrder                  []TaskRef      `json:"taskOrder"`
	LastSaveTime               time.Time      `json:"lastSaveTime"`
}

// ReviewBatch is the relay body of a review session
type ReviewBatch struct {
	EvaluatorID          string                `json:"evaluatorId"`
	Timestamp            time.Time             `json:"timestamp"`
	Phase                Phase                 `json:"phase"`
	TotalTasks           int                   `json:"totalTasks"`
	SegmentEvaluations   []SegmentEvaluation   `json:"segmentEvaluations"`
	WholisticEvaluations []WholisticEvaluation `json:"wholisticEvaluations"`
}

// ReviewSummary holds the statistics shown when a review session completes
type ReviewSummary struct {
	SegmentEvaluations int `json:"segmentEvaluations"`
	PapersReviewed     int `json:"papersReviewed"`
	TotalQuestions     int `json:"totalQuestions"`
	CompletedSegments  int `json:"completedSegments"`
	SkippedSegments    int `json:"skippedSegments"`
	CompletionRate     int `json:"completionRate"`
}

// ComparisonSummary holds per-method win counts of a comparison session
type ComparisonSummary struct {
	TotalComparisons int                       `json:"totalComparisons"`
	Wins             map[string]int            `json:"wins"`
	WinsByCriterion  map[string]map[string]int `json:"winsByCriterion"`
}
