package integrity

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"hash"
	"time"

	"golang.org/x/xerrors"
)

// Algorithm is a checksum algorithm name
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmSHA512 Algorithm = "sha512"
	AlgorithmSHA1   Algorithm = "sha1"
	AlgorithmMD5    Algorithm = "md5"
)

// newHash returns a hash.Hash for the algorithm
func newHash(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmSHA512:
		return sha512.New(), nil
	case AlgorithmSHA1:
		return sha1.New(), nil
	case AlgorithmMD5:
		return md5.New(), nil
	default:
		return nil, xerrors.Errorf("unknown checksum algorithm %q", algorithm)
	}
}

// Result contains digests computed over a serialized payload
type Result struct {
	Primary   string    `json:"primary"`
	Secondary string    `json:"secondary,omitempty"`
	HMAC      string    `json:"hmac,omitempty"`
	Algorithm Algorithm `json:"algorithm"`
	Timestamp int64     `json:"timestamp"`
	DataSize  int       `json:"data_size"`
}

// Validation is the outcome of a checksum validation with per-digest detail
type Validation struct {
	Valid   bool            `json:"valid"`
	Details map[string]bool `json:"details"`
	Errors  []string        `json:"errors,omitempty"`
}

// Validator computes and verifies integrity digests
type Validator struct {
	algorithm          Algorithm
	secondaryAlgorithm Algorithm
	hmacKey            []byte
}

// NewValidator creates a new Validator.
// secondaryAlgorithm may be empty; hmacKey may be nil.
func NewValidator(algorithm Algorithm, secondaryAlgorithm Algorithm, hmacKey []byte) (*Validator, error) {
	if len(algorithm) == 0 {
		algorithm = AlgorithmSHA256
	}

	if _, err := newHash(algorithm); err != nil {
		return nil, err
	}

	if len(secondaryAlgorithm) > 0 {
		if _, err := newHash(secondaryAlgorithm); err != nil {
			return nil, err
		}
	}

	return &Validator{
		algorithm:          algorithm,
		secondaryAlgorithm: secondaryAlgorithm,
		hmacKey:            hmacKey,
	}, nil
}

// digest hashes data, optionally concatenated with canonical serialized metadata
func (validator *Validator) digest(algorithm Algorithm, data []byte, metadata interface{}) (string, error) {
	hasher, err := newHash(algorithm)
	if err != nil {
		return "", err
	}

	hasher.Write(data)

	if metadata != nil {
		metadataBytes, err := json.Marshal(metadata)
		if err != nil {
			return "", xerrors.Errorf("failed to serialize checksum metadata: %w", err)
		}
		hasher.Write(metadataBytes)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Calculate computes digests over data plus optional metadata
func (validator *Validator) Calculate(data []byte, metadata interface{}) (Result, error) {
	result := Result{
		Algorithm: validator.algorithm,
		Timestamp: time.Now().UnixMilli(),
		DataSize:  len(data),
	}

	primary, err := validator.digest(validator.algorithm, data, metadata)
	if err != nil {
		return result, xerrors.Errorf("failed to compute primary checksum: %w", err)
	}
	result.Primary = primary

	if len(validator.secondaryAlgorithm) > 0 {
		secondary, err := validator.digest(validator.secondaryAlgorithm, data, metadata)
		if err != nil {
			return result, xerrors.Errorf("failed to compute secondary checksum: %w", err)
		}
		result.Secondary = secondary
	}

	if len(validator.hmacKey) > 0 {
		mac := hmac.New(sha256.New, validator.hmacKey)
		mac.Write(data)
		result.HMAC = hex.EncodeToString(mac.Sum(nil))
	}

	return result, nil
}

// Validate recomputes digests and compares them to the expected result.
// Every mismatch is reported with a specific reason.
func (validator *Validator) Validate(data []byte, metadata interface{}, expected Result) (Validation, error) {
	validation := Validation{
		Valid:   true,
		Details: map[string]bool{},
	}

	algorithm := expected.Algorithm
	if len(algorithm) == 0 {
		algorithm = validator.algorithm
	}

	primary, err := validator.digest(algorithm, data, metadata)
	if err != nil {
		return Validation{}, err
	}

	validation.Details["primary"] = primary == expected.Primary
	if primary != expected.Primary {
		validation.Valid = false
		validation.Errors = append(validation.Errors, "primary checksum mismatch")
	}

	if len(expected.Secondary) > 0 {
		secondary, err := validator.digest(validator.secondaryAlgorithm, data, metadata)
		if err != nil {
			return Validation{}, err
		}

		validation.Details["secondary"] = secondary == expected.Secondary
		if secondary != expected.Secondary {
			validation.Valid = false
			validation.Errors = append(validation.Errors, "secondary checksum mismatch")
		}
	}

	if len(expected.HMAC) > 0 {
		mac := hmac.New(sha256.New, validator.hmacKey)
		mac.Write(data)
		computed := hex.EncodeToString(mac.Sum(nil))

		match := hmac.Equal([]byte(computed), []byte(expected.HMAC))
		validation.Details["hmac"] = match
		if !match {
			validation.Valid = false
			validation.Errors = append(validation.Errors, "hmac mismatch")
		}
	}

	validation.Details["size"] = len(data) == expected.DataSize
	if len(data) != expected.DataSize {
		validation.Valid = false
		validation.Errors = append(validation.Errors, "data size mismatch")
	}

	return validation, nil
}
