package domain

import "path/filepath"

// Question is a single spoken question with an optional picture of the problem.
type Question struct {
	ID        string
	AudioPath string
	ImagePath string
	Speech    SpeechPaths
}

func (q Question) HasImage() bool {
	return q.ImagePath != ""
}

// SpeechPaths names the files the synthesizer writes for one answer.
type SpeechPaths struct {
	Compressed string
	Final      string
}

func SpeechPathsIn(dir string) SpeechPaths {
	return SpeechPaths{
		Compressed: filepath.Join(dir, "answer.mp3"),
		Final:      filepath.Join(dir, "answer.wav"),
	}
}

type Stage string

const (
	StageTranscription Stage = "transcription"
	StageAnalysis      Stage = "analysis"
	StageSynthesis     Stage = "synthesis"
)

// Answered is what the user gets back. Transcript, Answer and AudioPath are
// never empty; stages that fell back to a placeholder are listed in Degraded.
type Answered struct {
	QuestionID string
	Transcript string
	Answer     string
	AudioPath  string
	Degraded   []Stage
}

func (a *Answered) IsDegraded(stage Stage) bool {
	for _, s := range a.Degraded {
		if s == stage {
			return true
		}
	}
	return false
}
