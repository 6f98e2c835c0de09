package prompt

import "fmt"

// Kind names the task a prompt is built for.
type Kind string

const (
	KindSummary   Kind = "summary"
	KindQuiz      Kind = "quiz"
	KindChat      Kind = "chat"
	KindTranslate Kind = "translate"
	KindVision    Kind = "vision"
)

// Request is an immutable prompt built fresh for one invocation.
type Request struct {
	Kind   Kind
	System string
	User   string
	Source string
}

const summarySystem = `You are an expert learning assistant and content strategist specializing in transforming complex information into clear, actionable summaries.

Your expertise includes:
- Identifying key concepts and their relationships
- Distilling complex information for different audiences
- Creating structured, scannable content
- Maintaining accuracy while ensuring clarity

Always approach each text systematically: first analyze the main themes, then identify supporting details, and finally structure the information for optimal comprehension.`

const summaryTemplate = `Analyze and summarize the following text using a systematic approach:

TEXT TO ANALYZE:
%s

INSTRUCTIONS:
1. First, identify the main topic and primary purpose of this text
2. Extract 3-5 key concepts or arguments that support the main idea
3. Note any important details, examples, or data that add context
4. Consider what a learning-focused audience would find most valuable

FORMAT YOUR SUMMARY as follows:

# Overview
Write 2-3 sentences that capture the main topic and its significance for learners.

## Key Concepts
- **Concept 1**: Brief explanation with why it matters
- **Concept 2**: Brief explanation with why it matters
- **Concept 3**: Brief explanation with why it matters
[Add more if needed, maximum 5]

## Important Details
- Critical detail, example, or data point
- Another significant supporting information
- Additional context that enhances understanding
[Maximum 4 details]

## Learning Focus
One sentence explaining what readers should remember or apply from this content.

GUIDELINES:
- Keep total length under 200 words
- Use clear, accessible language suitable for students and professionals
- Focus on actionable insights and core understanding
- Avoid jargon unless essential (then briefly explain it)
- Ensure each point adds unique value`

const quizSystem = `You are an educational assessment expert specializing in creating effective multiple-choice questions that test comprehension and application of knowledge.

Your expertise includes:
- Designing questions that assess different levels of understanding (recall, comprehension, application)
- Creating plausible distractors that reveal common misconceptions
- Writing clear, unambiguous question stems
- Providing educational explanations that reinforce learning

Focus on creating questions that help learners consolidate their understanding and identify knowledge gaps.`

const quizTemplate = `Create an effective multiple-choice question based on the following summary:

SUMMARY TO ANALYZE:
%s

INSTRUCTIONS:
1. Identify the most important concept that learners should understand
2. Create a question that tests comprehension rather than just recall
3. Design 4 options where ONLY ONE is correct, others must be clearly incorrect
4. Ensure incorrect options represent common misconceptions or partial understanding
5. Randomly place the correct answer among the four options (A, B, C, or D)

QUESTION REQUIREMENTS:
- Focus on key concepts, not minor details
- Test understanding, not memorization
- Use clear, direct language
- Avoid negative phrasing or "all of the above"
- Mix up the position of the correct answer to avoid patterns
- Ensure there is EXACTLY ONE correct answer, no ambiguity

FORMAT:
Q: [Clear, specific question about a key concept]
A) [One of the four options - could be correct or incorrect]
B) [One of the four options - could be correct or incorrect]
C) [One of the four options - could be correct or incorrect]
D) [One of the four options - could be correct or incorrect]
Correct: [A/B/C/D]
Explanation: [2-3 sentences explaining why the correct answer is right and clearly why others are wrong, reinforcing the learning point]`

const chatSystem = "You are a helpful and patient AI teacher. Answer the user's questions in a clear and concise way."

const visionSystem = "You are a helpful assistant. When the user attaches images, look at them closely and answer about what they show."

const translateSystem = `You are a professional translator. Translate the user's text from %s to %s.
Preserve meaning, tone and formatting. Reply with the translation only, without notes or explanations.`

// Summary builds the four-section Markdown summary prompt around source.
func Summary(source string) Request {
	return Request{
		Kind:   KindSummary,
		System: summarySystem,
		User:   fmt.Sprintf(summaryTemplate, source),
		Source: source,
	}
}

// Quiz builds the seven-line multiple-choice prompt around a summary.
func Quiz(summary string) Request {
	return Request{
		Kind:   KindQuiz,
		System: quizSystem,
		User:   fmt.Sprintf(quizTemplate, summary),
		Source: summary,
	}
}

// Chat returns the tutor persona. Messages are sent as conversational turns unmodified.
func Chat() Request {
	return Request{Kind: KindChat, System: chatSystem}
}

// Vision returns the persona for image conversations. Messages and images
// are sent as turns unmodified.
func Vision() Request {
	return Request{Kind: KindVision, System: visionSystem}
}

// Translate builds a translation prompt; languages are display names, e.g. "English".
func Translate(text, sourceLanguage, targetLanguage string) Request {
	return Request{
		Kind:   KindTranslate,
		System: TranslateSystem(sourceLanguage, targetLanguage),
		User:   text,
		Source: text,
	}
}

// TranslateSystem is the system prompt for one language pair.
func TranslateSystem(sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf(translateSystem, sourceLanguage, targetLanguage)
}
