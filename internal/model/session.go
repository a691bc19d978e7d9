package model

import "time"

// Progress describes how far the evaluator is through the current flow
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Text       string  `json:"text"`
}

// ComparisonView is what the rendering surface shows for a comparison unit
type ComparisonView struct {
	Index        int                  `json:"index"`
	Episode      string               `json:"episode"`
	EpisodeIndex int                  `json:"episodeIndex"`
	Videos       map[Slot]string      `json:"videos"`
	Questions    []ComparisonQuestion `json:"questions"`
}

// SegmentView is what the rendering surface shows for a segment task
type SegmentView struct {
	TaskIndex          int            `json:"taskIndex"`
	PaperName          string         `json:"paperName"`
	PaperDescription   string         `json:"paperDescription"`
	SectionName        string         `json:"sectionName"`
	SectionDescription string         `json:"sectionDescription"`
	Question           string         `json:"question"`
	FollowUpLabel      string         `json:"followUpLabel"`
	VideoPath          string         `json:"videoPath"`
	StarLabels         map[int]string `json:"starLabels"`
}

// WholisticView is what the rendering surface shows for a method review
type WholisticView struct {
	PaperIndex       int         `json:"paperIndex"`
	TotalPapers      int         `json:"totalPapers"`
	PaperName        string      `json:"paperName"`
	PaperDescription string      `json:"paperDescription"`
	Videos           []string    `json:"videos"`
	VideoIndex       int         `json:"videoIndex"`
	VideoPath        string      `json:"videoPath"`
	VideoCounter     string      `json:"videoCounter"`
	CanPrevious      bool        `json:"canPrevious"`
	CanNext          bool        `json:"canNext"`
	Criteria         []Criterion `json:"criteria"`
	ProgressText     string      `json:"progressText"`
}

// View is the observable state of a session after each transition
type View struct {
	Flow              Flow               `json:"flow"`
	EvaluatorID       string             `json:"evaluatorId"`
	Phase             Phase              `json:"phase"`
	Progress          Progress           `json:"progress"`
	Comparison        *ComparisonView    `json:"comparison,omitempty"`
	Segment           *SegmentView       `json:"segment,omitempty"`
	Wholistic         *WholisticView     `json:"wholistic,omitempty"`
	ReviewSummary     *ReviewSummary     `json:"reviewSummary,omitempty"`
	ComparisonSummary *ComparisonSummary `json:"comparisonSummary,omitempty"`
	LastSaveTime      *time.Time         `json:"lastSaveTime,omitempty"`
}

// StartSessionRequest carries the evaluator's answers to the resume prompts.
// Resume answers "resume saved progress?"; Discard answers "start a new evaluation?".
type StartSessionRequest struct {
	Resume  *bool `json:"resume"`
	Discard *bool `json:"discard"`
}

// StartSessionResponse reports how a session was opened
type StartSessionResponse struct {
	Resumed bool `json:"resumed"`
	View    View `json:"view"`
}

// SavedProgressResponse describes a resumable snapshot before the evaluator decides
type SavedProgressResponse struct {
	Exists         bool       `json:"exists"`
	Message        string     `json:"message,omitempty"`
	Phase          Phase      `json:"phase,omitempty"`
	CompletedUnits int        `json:"completedUnits"`
	TotalUnits     int        `json:"totalUnits"`
	LastSaveTime   *time.Time `json:"lastSaveTime,omitempty"`
}

// ComparisonSubmitRequest holds the chosen slot per comparison question
type ComparisonSubmitRequest struct {
	Answers map[ComparisonQuestion]Slot `json:"answers" validate:"required"`
}

// RatingSubmitRequest holds the star rating of the current segment task
type RatingSubmitRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comments string `json:"comments" validate:"max=5000"`
}

// ReviewSubmitRequest holds the criterion ratings of the current method review
type ReviewSubmitRequest struct {
	Ratings       map[string]int `json:"ratings" validate:"omitempty,dive,min=1,max=5"`
	Comments      string         `json:"comments" validate:"max=10000"`
	AcceptPartial bool           `json:"acceptPartial"`
}

// DeviceTokenResponse is issued to a browser the first time it opens the study
type DeviceTokenResponse struct {
	Token     string    `json:"token"`
	DeviceID  string    `json:"deviceId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
