package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
)

const (
	phcPrefix        = "$argon2id$"
	minPasswordRunes = 8
)

var errMalformedHash = errors.New("malformed argon2id hash")

// argonCost is the tuning embedded in every encoded hash.
type argonCost struct {
	memoryKB uint32
	passes   uint32
	lanes    uint8
	saltLen  int
	keyLen   uint32
}

func costFrom(cfg config.PasswordConfig) argonCost {
	return argonCost{
		memoryKB: uint32(bounded(cfg.ArgonMemoryKB, 8, 512*1024)),
		passes:   uint32(bounded(cfg.ArgonTime, 1, 10)),
		lanes:    uint8(bounded(cfg.ArgonParallelism, 1, 255)),
		saltLen:  bounded(cfg.ArgonSaltLen, 8, 64),
		keyLen:   uint32(bounded(cfg.ArgonKeyLen, 16, 64)),
	}
}

func bounded(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// HashPassword derives an Argon2id key for password and encodes it in PHC
// string form together with its salt and cost.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	cost := costFrom(cfg)
	salt := make([]byte, cost.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, cost.passes, cost.memoryKB, cost.lanes, cost.keyLen)

	var b strings.Builder
	fmt.Fprintf(&b, "%sv=%d$m=%d,t=%d,p=%d$", phcPrefix, argon2.Version, cost.memoryKB, cost.passes, cost.lanes)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))
	return b.String(), nil
}

// VerifyPassword reports whether password matches encoded. A malformed hash
// is an error, a mismatch is not.
func VerifyPassword(password, encoded string) (bool, error) {
	cost, salt, want, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, cost.passes, cost.memoryKB, cost.lanes, cost.keyLen)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsRehash reports whether encoded was produced with a cost that differs
// from the configured one. Unparseable hashes always need a rehash.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	stored, salt, _, err := parseHash(encoded)
	if err != nil {
		return true
	}
	want := costFrom(cfg)
	return stored.memoryKB != want.memoryKB ||
		stored.passes != want.passes ||
		stored.lanes != want.lanes ||
		stored.keyLen != want.keyLen ||
		len(salt) != want.saltLen
}

func parseHash(encoded string) (argonCost, []byte, []byte, error) {
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return argonCost{}, nil, nil, errMalformedHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return argonCost{}, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return argonCost{}, nil, nil, errMalformedHash
	}
	var cost argonCost
	var lanes uint32
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &cost.memoryKB, &cost.passes, &lanes); err != nil {
		return argonCost{}, nil, nil, errMalformedHash
	}
	if cost.memoryKB == 0 || cost.passes == 0 || lanes == 0 || lanes > 255 {
		return argonCost{}, nil, nil, errMalformedHash
	}
	cost.lanes = uint8(lanes)

	salt, err := base64.RawStdEncoding.DecodeString(fields[2])
	if err != nil || len(salt) == 0 {
		return argonCost{}, nil, nil, errMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[3])
	if err != nil || len(key) == 0 {
		return argonCost{}, nil, nil, errMalformedHash
	}
	cost.saltLen = len(salt)
	cost.keyLen = uint32(len(key))
	return cost, salt, key, nil
}

// CheckPasswordPolicy returns why password is too weak, or "" when it is
// acceptable.
func CheckPasswordPolicy(password string) string {
	var letters, digits, total int
	for _, r := range password {
		total++
		if unicode.IsLetter(r) {
			letters++
		} else if unicode.IsDigit(r) {
			digits++
		}
	}
	if total < minPasswordRunes {
		return fmt.Sprintf("password must be at least %d characters", minPasswordRunes)
	}
	if letters == 0 || digits == 0 {
		return "password must contain letters and digits"
	}
	return ""
}
