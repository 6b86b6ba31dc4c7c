package analyses

// CryptoClass enum
type CryptoClass string

const (
	ClassAES       CryptoClass = "aes"
	ClassRSA       CryptoClass = "rsa"
	ClassECC       CryptoClass = "ecc"
	ClassSHA       CryptoClass = "sha"
	ClassMD5       CryptoClass = "md5"
	ClassHMAC      CryptoClass = "hmac"
	ClassPRNG      CryptoClass = "prng"
	ClassXOR       CryptoClass = "xor"
	ClassDES       CryptoClass = "des"
	ClassRC4       CryptoClass = "rc4"
	ClassNonCrypto CryptoClass = "non_crypto"
	ClassUnknown   CryptoClass = "unknown"
)

// DetectedFunction is one classified function from the binary
type DetectedFunction struct {
	AnalysisID       AnalysisID  `json:"analysis_id"`
	Address          string      `json:"address"`
	Name             string      `json:"function_name"`
	Classification   CryptoClass `json:"classification"`
	Confidence       float64     `json:"confidence"`
	IsCrypto         bool        `json:"is_crypto"`
	InstructionCount int         `json:"instruction_count"`
	BasicBlocks      int         `json:"basic_blocks"`
	CFGComplexity    int         `json:"cfg_complexity"`
	SimilarLibrary   string      `json:"similar_library,omitempty"`
	SimilarityScore  float64     `json:"similarity_score,omitempty"`
}

// ProtocolStep is one inferred step of the protocol flow
type ProtocolStep struct {
	AnalysisID  AnalysisID `json:"analysis_id"`
	StepNumber  int        `json:"step_number"`
	StepName    string     `json:"step_name"`
	Description string     `json:"description"`
	Functions   []string   `json:"functions"`
	Confidence  float64    `json:"confidence"`
}
