package prompt

import "fmt"

// System and user prompts for the advisory passes over extracted functions.

const classifySystem = `You are a binary analysis expert specializing in cryptographic function detection. Analyze functions and determine if they implement cryptographic algorithms.`

const protocolSystem = `You are a protocol analysis expert. Infer high-level protocol flows from detected cryptographic functions.`

func ClassifySystemPrompt() string { return classifySystem }

func ClassifyUserPrompt(functionsJSON string) string {
	return fmt.Sprintf(`Analyze these binary functions and classify them as crypto or non-crypto.
Consider: instruction patterns, CFG complexity, typical crypto characteristics like S-box lookups,
round structures, and heavy arithmetic operations.

Functions: %s`, functionsJSON)
}

func ProtocolSystemPrompt() string { return protocolSystem }

func ProtocolUserPrompt(cryptoFunctionsJSON string) string {
	return fmt.Sprintf(`Based on these crypto functions, infer the high-level protocol flow:
%s

Identify: handshake patterns, key exchange, authentication, and data encryption phases.`, cryptoFunctionsJSON)
}
