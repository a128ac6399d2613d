package receipt

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/smallstep/pkcs7"
)

var ErrSignature = errors.New("receipt: signature verification failed")

// VerifySignature checks the PKCS#7 signature over the receipt content. With a
// nil pool only the signer's own signature is checked; otherwise the signer
// certificate must chain to one of roots.
func VerifySignature(raw []byte, roots *x509.CertPool) error {
	p7, err := pkcs7.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if roots == nil {
		err = p7.Verify()
	} else {
		err = p7.VerifyWithChain(roots)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return nil
}

// LoadRoots builds a pool from PEM encoded certificates.
func LoadRoots(pemCerts []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemCerts) {
		return nil, errors.New("receipt: no certificates found in PEM data")
	}
	return pool, nil
}
