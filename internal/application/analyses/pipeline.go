package analyses

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	domain "github.com/firmproof/firmproof/internal/domain/analyses"
)

// Placeholder pipeline. Function extraction and classification are randomly
// generated in the shape real tooling would produce; this repository does no
// lifting or disassembly.

const baseAddress = 0x00400000

var cryptoClasses = []domain.CryptoClass{
	domain.ClassAES, domain.ClassRSA, domain.ClassECC,
	domain.ClassSHA, domain.ClassHMAC, domain.ClassPRNG,
}

var referenceLibraries = []string{
	"OpenSSL 1.1.1",
	"mbedTLS 2.16",
	"wolfSSL 4.7",
	"libsodium 1.0.18",
}

// generateFunctions emits 20-70 functions at 0x100 strides from the base
// address.
func generateFunctions(id domain.AnalysisID) []*domain.DetectedFunction {
	n := rand.IntN(50) + 20
	fns := make([]*domain.DetectedFunction, 0, n)
	for i := 0; i < n; i++ {
		addr := baseAddress + i*0x100
		fns = append(fns, &domain.DetectedFunction{
			AnalysisID:       id,
			Address:          fmt.Sprintf("0x%08x", addr),
			Name:             fmt.Sprintf("sub_%x", addr),
			InstructionCount: rand.IntN(100) + 10,
			BasicBlocks:      rand.IntN(20) + 3,
			CFGComplexity:    rand.IntN(10) + 1,
		})
	}
	return fns
}

// classifyFunctions fills in the classification fields in place.
func classifyFunctions(fns []*domain.DetectedFunction) {
	for _, f := range fns {
		isCrypto := rand.Float64() > 0.7
		f.IsCrypto = isCrypto
		f.Confidence = round1(rand.Float64()*15 + 85)
		if isCrypto {
			f.Classification = cryptoClasses[rand.IntN(len(cryptoClasses))]
			f.SimilarLibrary = referenceLibraries[rand.IntN(len(referenceLibraries))]
			f.SimilarityScore = round1(rand.Float64()*10 + 90)
		} else {
			f.Classification = domain.ClassNonCrypto
		}
	}
}

// inferProtocolFlow builds the protocol timeline from the crypto functions.
// Fewer than 3 crypto functions is not enough signal for a flow.
func inferProtocolFlow(id domain.AnalysisID, fns []*domain.DetectedFunction) []*domain.ProtocolStep {
	var crypto []*domain.DetectedFunction
	for _, f := range fns {
		if f.IsCrypto {
			crypto = append(crypto, f)
		}
	}
	if len(crypto) < 3 {
		return nil
	}
	names := func(lo, hi int) []string {
		if hi > len(crypto) {
			hi = len(crypto)
		}
		var out []string
		for _, f := range crypto[lo:hi] {
			out = append(out, f.Name)
		}
		return out
	}
	return []*domain.ProtocolStep{
		{
			AnalysisID:  id,
			StepNumber:  1,
			StepName:    "Handshake Init",
			Description: "Client hello with supported cipher suites",
			Functions:   names(0, 2),
			Confidence:  round1(rand.Float64()*5 + 95),
		},
		{
			AnalysisID:  id,
			StepNumber:  2,
			StepName:    "Key Exchange",
			Description: "ECDH P-256 key agreement",
			Functions:   names(2, 4),
			Confidence:  round1(rand.Float64()*5 + 93),
		},
	}
}

// functionSample serializes the first functions for the advisory AI prompt.
func functionSample(fns []*domain.DetectedFunction) string {
	n := len(fns)
	if n > 5 {
		n = 5
	}
	b, _ := json.Marshal(fns[:n])
	return string(b)
}

// cryptoSample serializes the first crypto functions for the protocol
// prompt.
func cryptoSample(fns []*domain.DetectedFunction) string {
	var crypto []*domain.DetectedFunction
	for _, f := range fns {
		if f.IsCrypto {
			crypto = append(crypto, f)
			if len(crypto) == 5 {
				break
			}
		}
	}
	b, _ := json.Marshal(crypto)
	return string(b)
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
