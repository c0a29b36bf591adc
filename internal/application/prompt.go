package application

import "fmt"

const SystemPrompt = `You are a helpful, knowledgeable math assistant AI who helps users solve math questions of all types: algebra, geometry, calculus, number theory, and more.
Answer clearly, concisely, and in simple language that suits the user level (beginner, intermediate, or advanced).
Always provide reasoning for the steps if relevant.
Only focus on the math question and the image provided. Avoid small talk or AI disclaimers.
No markdown formatting or special characters, just plain explanations.
Avoid saying things like "As an AI..." or "In the image, I see...".
Start directly with your math explanation.`

const (
	PlaceholderTranscriptionFailed = "There was a problem transcribing your audio."
	PlaceholderNoQuestion          = "No question was captured from the audio."
	PlaceholderNoImage             = "No image provided for me to analyze."
)

func BuildPrompt(transcript string) string {
	return SystemPrompt + "\n\nQuestion: " + transcript
}

func analysisFailed(err error) string {
	return fmt.Sprintf("Failed to analyze image. Error: %s", err.Error())
}
