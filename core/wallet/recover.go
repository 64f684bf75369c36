package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// RecoverSeed pulls the seed phrase out of a wallet file that no longer
// loads. It reads the file token by token and stops at the first damaged
// value, so the seed survives corruption anywhere after it.
func RecoverSeed(path string, password []byte) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open wallet file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("failed to read wallet file: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", errors.New("wallet file is not a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		key, ok := tok.(string)
		if !ok {
			break
		}

		switch key {
		case "seed":
			var phrase string
			if err := dec.Decode(&phrase); err != nil {
				return "", fmt.Errorf("seed entry is damaged: %w", err)
			}
			return checkRecovered(phrase)

		case "encrypted_seed":
			var sealed sealedSeed
			if err := dec.Decode(&sealed); err != nil {
				return "", fmt.Errorf("encrypted seed entry is damaged: %w", err)
			}
			if len(password) == 0 {
				return "", errors.New("wallet is encrypted, a password is required")
			}
			phrase, err := sealed.open(password)
			if err != nil {
				return "", err
			}
			return checkRecovered(phrase)

		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return "", fmt.Errorf("wallet file is damaged before the seed (at %q): %w", key, err)
			}
		}
	}
	return "", errors.New("no seed found in wallet file")
}

func checkRecovered(phrase string) (string, error) {
	if _, err := newKeychain(phrase); err != nil {
		return "", fmt.Errorf("recovered seed is unusable: %w", err)
	}
	return NormalizeSeedPhrase(phrase), nil
}
