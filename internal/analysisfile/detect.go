// Package analysisfile guesses the instruction-set architecture of an
// uploaded firmware image. ELF headers are authoritative; anything else is
// reported unknown and left for the user to override.
package analysisfile

import (
	"bytes"
	"debug/elf"

	domain "github.com/firmproof/firmproof/internal/domain/analyses"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// DetectISA maps the ELF machine field onto the supported ISA set. Raw
// images without an ELF header come back as unknown.
func DetectISA(path string) domain.ISA {
	f, err := elf.Open(path)
	if err != nil {
		return domain.ISAUnknown
	}
	defer f.Close()

	switch f.Machine {
	case elf.EM_ARM:
		return domain.ISAARM
	case elf.EM_AARCH64:
		return domain.ISAARM64
	case elf.EM_386:
		return domain.ISAX86
	case elf.EM_X86_64:
		return domain.ISAX8664
	case elf.EM_MIPS:
		return domain.ISAMIPS
	case elf.EM_RISCV:
		return domain.ISARISCV
	case elf.EM_AVR:
		return domain.ISAAVR
	default:
		return domain.ISAUnknown
	}
}

// LooksLikeELF is a cheap header sniff for the upload validator.
func LooksLikeELF(header []byte) bool {
	return len(header) >= len(elfMagic) && bytes.Equal(header[:len(elfMagic)], elfMagic)
}
