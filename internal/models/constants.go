package models

const (
	// ContextSeparator separates retrieved chunks inside the prompt context.
	ContextSeparator = "\n---\n"

	// NoDocumentsAnswer is returned without calling the language model when
	// the vector store holds no entries.
	NoDocumentsAnswer = "No documents have been ingested yet. Upload a PDF or text file and ask again."

	// MockAnswer is the fixed reply of the mock language model.
	MockAnswer = "[mock-llm] Mock answer with citations from your documents."

	// PreviewLength is the number of characters kept in a source content preview.
	PreviewLength = 200

	// UnknownSource is used when a chunk carries no source filename.
	UnknownSource = "unknown"
)

// Provider kinds reported by the health endpoint.
const (
	EmbeddingOllama = "ollama"
	EmbeddingOpenAI = "openai"
	EmbeddingFake   = "fake"

	StoreChromem   = "chromem"
	StoreSQLiteVec = "sqlitevec"
	StorePGVector  = "pgvector"
	StoreMemory    = "memory"

	LLMOpenAI = "openai"
	LLMOllama = "ollama"
	LLMMock   = "mock"
)

var (
	// PromptTemplate takes the joined context and the question, in that order.
	PromptTemplate = `You are an AI assistant that answers questions using the provided context.
Use only the information from the context. When you use a piece of context, cite it as [source:page].

Context:
%s

Question: %s

Answer in a concise paragraph followed by a bullet list of cited sources.
`
)
