package analytics

import (
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint is what the tracking endpoints know about a client. It is
// hashed before storage and never kept in the clear.
type Fingerprint struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	IP             string
}

func (fp *Fingerprint) IsEmpty() bool {
	return fp == nil || (fp.UserAgent == "" && fp.AcceptLanguage == "" && fp.AcceptEncoding == "" && fp.IP == "")
}

// FingerprintFromRequest reads the client fingerprint of r. The first
// X-Forwarded-For hop wins over the remote address.
func FingerprintFromRequest(r *http.Request) *Fingerprint {
	return &Fingerprint{
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		IP:             clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip, _, _ := strings.Cut(fwd, ","); strings.TrimSpace(ip) != "" {
			return strings.TrimSpace(ip)
		}
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type hasher struct {
	key []byte
}

// newHasher keys BLAKE2b with secret. Secrets longer than a BLAKE2b key are
// digested first.
func newHasher(secret string) *hasher {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &hasher{key: key}
}

// hash returns the hex keyed digest of fp. An empty fingerprint hashes to a
// random value so it always counts as unique.
func (h *hasher) hash(fp *Fingerprint) string {
	if fp.IsEmpty() {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	d, err := blake2b.New256(h.key)
	if err != nil {
		// key length is bounded in newHasher
		panic(err)
	}
	for _, part := range []string{fp.UserAgent, fp.AcceptLanguage, fp.AcceptEncoding, fp.IP} {
		_, _ = d.Write([]byte(part))
		_, _ = d.Write([]byte{0})
	}

	return hex.EncodeToString(d.Sum(nil))
}
