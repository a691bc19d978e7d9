package model

// SlotMapping maps every anonymized slot of one unit to a method id
type SlotMapping map[Slot]string

// ComparisonUnit is one triplewise comparison presented to the evaluator
type ComparisonUnit struct {
	Episode      string      `json:"episode"`
	EpisodeIndex int         `json:"episodeIndex"`
	Methods      [3]Method   `json:"papers"`
	Mapping      SlotMapping `json:"mapping"`
}

// SegmentTask is one rateable clip of the segment-review phase
type SegmentTask struct {
	Method     Method         `json:"paper"`
	Section    Section        `json:"section"`
	Clip       string         `json:"clip"`
	StarLabels map[int]string `json:"starLabels"`
}

// Ref returns the persisted identity of the task
func (t SegmentTask) Ref() TaskRef {
	return TaskRef{
		MethodID:  t.Method.ID,
		SectionID: t.Section.ID,
		ClipID:    t.Clip,
	}
}

// TaskRef identifies a segment task inside a saved task order
type TaskRef struct {
	MethodID  string `json:"methodId"`
	SectionID string `json:"sectionId"`
	ClipID    string `json:"clipId"`
}
