package mocktx

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"golang.org/x/crypto/blake2b"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
)

var templateTag = regexp.MustCompile(`\{\{\s*(data|hash|def_type|ref_type)\s+([^}]+?)\s*\}\}`)

// Expand substitutes every `{{ data PATH }}`, `{{ hash PATH }}`,
// `{{ def_type NAME }}`, and `{{ ref_type NAME }}` tag in src before the
// result is parsed as JSON. def_type tags are resolved first so ref_type
// can look their names up; a duplicate def_type name is an error.
func Expand(src string) (string, error) {
	defs := make(map[string]JSONScript)

	// First pass: register every def_type, erroring on duplicates, without
	// mutating the source yet (ref_type substitution needs the full set).
	for _, m := range templateTag.FindAllStringSubmatch(src, -1) {
		if m[1] != "def_type" {
			continue
		}
		name := m[2]
		if _, dup := defs[name]; dup {
			return "", errs.Usage("duplicate def_type name %q", name)
		}
		defs[name] = typeIDScript(name)
	}

	var expandErr error
	out := templateTag.ReplaceAllStringFunc(src, func(tag string) string {
		if expandErr != nil {
			return tag
		}
		m := templateTag.FindStringSubmatch(tag)
		kind, arg := m[1], m[2]

		switch kind {
		case "data":
			data, err := os.ReadFile(arg)
			if err != nil {
				expandErr = errs.Usage("template data %q: %v", arg, err)
				return tag
			}
			return `"` + hex.EncodeToString(data) + `"`

		case "hash":
			data, err := os.ReadFile(arg)
			if err != nil {
				expandErr = errs.Usage("template hash %q: %v", arg, err)
				return tag
			}
			sum := blake2b256(data)
			return `"0x` + hex.EncodeToString(sum[:]) + `"`

		case "def_type":
			s := defs[arg]
			return fmt.Sprintf(`{"code_hash":"%s","hash_type":"%s","args":"%s"}`, s.CodeHash, s.HashType, s.Args)

		case "ref_type":
			s, ok := defs[arg]
			if !ok {
				expandErr = errs.Usage("ref_type %q has no matching def_type", arg)
				return tag
			}
			hash := typeIDHash(s)
			return `"0x` + hex.EncodeToString(hash[:]) + `"`
		}
		return tag
	})
	if expandErr != nil {
		return "", expandErr
	}
	return out, nil
}

// typeIDScript builds the well-known type-ID script for a def_type name:
// a type script whose args are the name itself, identifying the script
// instance uniquely regardless of which code cell backs it.
func typeIDScript(name string) JSONScript {
	return JSONScript{
		CodeHash: typeIDCodeHash,
		HashType: "type",
		Args:     "0x" + hex.EncodeToString([]byte(name)),
	}
}

// typeIDCodeHash is the well-known code hash CKB reserves for type-ID
// scripts; any script with this code hash and hash_type "type" is
// identified solely by its args.
const typeIDCodeHash = "0x00000000000000000000000000000000000000000000000000545950455f4944"

func typeIDHash(s JSONScript) [32]byte {
	raw, _ := hex.DecodeString(trimHexPrefix(s.CodeHash))
	args, _ := hex.DecodeString(trimHexPrefix(s.Args))
	buf := append(append([]byte{}, raw...), byte('0'))
	buf = append(buf, []byte(s.HashType)...)
	buf = append(buf, args...)
	return blake2b256(buf)
}

func blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}
