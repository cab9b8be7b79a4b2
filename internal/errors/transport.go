package errors

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"

	"github.com/shhac/httpspy/internal/domain"
)

// Transport failure domains.
const (
	DomainContext   = "context"
	DomainDNS       = "dns"
	DomainNetwork   = "net"
	DomainTLS       = "tls"
	DomainTransport = "transport"
)

// Transport failure codes.
const (
	CodeUnknown            = -1
	CodeCancelled          = 1
	CodeTimedOut           = 2
	CodeConnectionRefused  = 3
	CodeHostNotFound       = 4
	CodeCertificateInvalid = 5
	CodeConnectionReset    = 6
)

// ClassifyTransport converts a round-trip error into the structured form
// recorded on an exchange. A failed request is data, not control flow, so
// this never returns nil for a non-nil error.
func ClassifyTransport(err error) *domain.TransportError {
	if err == nil {
		return nil
	}

	te := &domain.TransportError{
		Domain:      DomainTransport,
		Code:        CodeUnknown,
		Description: err.Error(),
	}

	var (
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		authorityEr x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		netErr      net.Error
		opErr       *net.OpError
	)

	switch {
	case errors.Is(err, context.Canceled):
		te.Domain, te.Code = DomainContext, CodeCancelled

	case errors.Is(err, context.DeadlineExceeded):
		te.Domain, te.Code = DomainContext, CodeTimedOut

	case errors.As(err, &dnsErr):
		te.Domain, te.Code = DomainDNS, CodeHostNotFound

	case errors.As(err, &certErr),
		errors.As(err, &authorityEr),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr):
		te.Domain, te.Code = DomainTLS, CodeCertificateInvalid

	case errors.Is(err, syscall.ECONNREFUSED):
		te.Domain, te.Code = DomainNetwork, CodeConnectionRefused

	case errors.Is(err, syscall.ECONNRESET):
		te.Domain, te.Code = DomainNetwork, CodeConnectionReset

	case errors.As(err, &netErr) && netErr.Timeout():
		te.Domain, te.Code = DomainNetwork, CodeTimedOut

	case errors.As(err, &opErr):
		te.Domain = DomainNetwork
	}

	return te
}
