package types

// Model describes a local GGUF file.
type Model struct {
	// Filename including extension.
	// example: gemma-3-1b-it-Q4_K_M.gguf
	ID string `json:"id" example:"gemma-3-1b-it-Q4_K_M.gguf"`
	// Filename without extension.
	// example: gemma-3-1b-it-Q4_K_M
	Name string `json:"name" example:"gemma-3-1b-it-Q4_K_M"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/gemma-3-1b-it-Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/gemma-3-1b-it-Q4_K_M.gguf"`
	// Quantization guessed from the filename, if any.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
}
