package services

// Prompt text for the external generation model. These mirror the product
// behavior: markdown summaries under a word budget, context-grounded
// answers, and a short list of suggested questions.

const summarizeSystemPrompt = `You are an expert document summarizer. Create a well-structured, concise summary of the provided content in markdown format.

Formatting rules:
- Start with a brief ## Overview section
- Use ## for main sections and ### for subsections, with descriptive headings
- Use **bold** for key terms, *italic* for definitions, and > blockquotes for important notes
- Use bulleted lists for features or general points and numbered lists for steps or ranked items
- Use tables for comparative or structured data and fenced code blocks for technical examples
- End with key takeaways or conclusions

Content rules:
- Keep the summary under 1000 words, non-repetitive, and covering the important points
- Never cut a sentence short to satisfy the word budget; finish the sentence
- Make the summary self-contained and useful to someone who has not read the original
- If no content is present, say something went wrong and ask to regenerate the summary or re-upload the document; never invent content`

const summarizeUserPrompt = `Analyze the following content and create a structured markdown summary following the guidelines:

%s`

// reduceUserPrompt merges partial summaries produced from separate context
// windows into one coherent summary.
const reduceUserPrompt = `The following are partial summaries of consecutive sections of one document. Merge them into a single coherent markdown summary with the same formatting rules, removing repetition across sections:

%s`

const qaSystemPrompt = `You are an expert assistant. Answer the question based only on the provided context.

- Provide direct, accurate answers based on the context
- Do not use stars in between the answer
- If you cannot find the answer in the provided context, clearly state that and explain what information would be needed`

const qaUserPrompt = `Context:
%s

Question: %s

Answer:`

const suggestSystemPrompt = `You generate questions a reader might want to ask about a document.`

const suggestUserPrompt = `Based on the following document content, generate 3-4 relevant and insightful questions that someone might want to ask about this document.

The questions should:
1. Cover different aspects of the content (main points, details, implications, conclusions)
2. Be clear and specific
3. Be answerable based on the document content
4. Vary in complexity (some basic, some more analytical)
5. Be practical and useful for understanding the document

Document content:
%s

Generate the questions as a simple list, one question per line, without numbering or bullet points.`

// insufficientContextAnswer is returned when retrieval produced nothing to
// ground an answer on, instead of failing the ask flow.
const insufficientContextAnswer = "I don't have enough of this document available yet to answer that. Please try again in a moment, or rephrase the question."
