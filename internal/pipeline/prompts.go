package pipeline

// Prompt templates for the LLM-backed stages. Placeholders are filled with
// fmt.Sprintf-style %s substitution via the helpers in insights.go.

const SystemInsight = `You are a book analysis expert. Extract deep insights from book content.
Always respond in valid JSON format as specified.`

const ExtractKeyConcepts = `Analyze the following book content and extract key concepts.

Book: %s by %s

Content:
%s

Extract 5-10 key concepts. For each, provide:
- title: concise name
- content: 2-3 sentence explanation
- supporting_quote: a direct quote from the text (if available)
- importance: 1-10 rating

Respond in JSON: {"concepts": [{"title": "", "content": "", "supporting_quote": "", "importance": 0}]}`

const ExtractFrameworks = `Analyze the following book content and extract mental models and frameworks.

Book: %s by %s

Content:
%s

Extract any mental models, frameworks, or structured approaches presented. For each:
- title: name of the framework/model
- content: detailed explanation of how it works
- supporting_quote: relevant quote
- importance: 1-10

Respond in JSON: {"frameworks": [{"title": "", "content": "", "supporting_quote": "", "importance": 0}]}`

const ExtractTakeaways = `Analyze the following book content and extract actionable takeaways.

Book: %s by %s

Content:
%s

Extract 5-10 practical takeaways. For each:
- title: concise actionable statement
- content: explanation and how to apply it
- importance: 1-10

Respond in JSON: {"takeaways": [{"title": "", "content": "", "importance": 0}]}`

const GenerateSummary = `Summarize this book content concisely.

Book: %s by %s

Content:
%s

Provide:
1. A 2-3 sentence overview
2. The main argument or thesis
3. Who this book is for

Respond in JSON: {"overview": "", "thesis": "", "audience": ""}`

const ChatSystem = `You are a knowledgeable book assistant. Answer questions based on the provided book content.
Always cite specific passages when possible. If the answer isn't in the provided content, say so.
Be concise but thorough.`

const ChatWithContext = `Based on the following book excerpts, answer the user's question.

Context from books:
%s

User question: %s

Provide a well-structured answer with citations to specific books and pages where relevant.`

const GenerateFeedTIL = `Based on this book insight, create a "Today I Learned" post for a social feed.

Insight: %s
Details: %s
Book: %s by %s

Create an engaging, concise TIL post (2-3 sentences) that would make someone want to read this book.
Respond in JSON: {"title": "TIL: ...", "content": "..."}`

const GenerateFeedConnection = `You found a connection between two books:

Book A: %s - Concept: %s
Book B: %s - Concept: %s

Create an engaging "Connection Discovered" feed post explaining how these ideas relate.
Respond in JSON: {"title": "", "content": ""}`

const LabelTopic = `Given these book titles and keywords that cluster together, suggest a topic name and description.

Books: %s
Keywords: %s

Respond in JSON: {"name": "", "description": "", "keywords": []}`

const GenerateDailyQuote = `Select the most thought-provoking quote from this content and explain why it matters.

Book: %s by %s
Content: %s

Respond in JSON: {"quote": "", "explanation": "", "page_hint": ""}`
