package errors

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageError(t *testing.T) {
	cause := errors.New("permission denied")
	err := fmt.Errorf("store: %w", &StorageError{
		Kind:       UnavailableCollectionRoot,
		Collection: "Requests",
		Key:        "abc",
		Err:        cause,
	})

	assert.ErrorIs(t, err, ErrCollectionUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsDecoding(err))
	assert.Contains(t, err.Error(), "unavailableCollectionRoot (Requests/abc)")

	dec := &StorageError{Kind: DecodingError, Collection: "Requests"}
	assert.True(t, IsDecoding(dec))
	assert.NotErrorIs(t, dec, ErrCollectionUnavailable)
	assert.Equal(t, "storage decodingError (Requests)", dec.Error())
}

func TestWaitTimeoutError(t *testing.T) {
	err := &WaitTimeoutError{
		Predicate: "exists",
		Criteria:  "method=GET",
		Timeout:   2 * time.Second,
	}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "method=GET")
	assert.Contains(t, err.Error(), "2s")

	corrupt := &StorageError{Kind: DecodingError, Collection: "Requests", Key: "x"}
	err.Err = corrupt
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsDecoding(err))

	absent := &WaitTimeoutError{Predicate: "absent", Criteria: "method=DELETE", Observed: 1}
	assert.Contains(t, absent.Error(), "expected no request matching method=DELETE")
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		domain string
		code   int
	}{
		{"cancelled", context.Canceled, DomainContext, CodeCancelled},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), DomainContext, CodeTimedOut},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, DomainDNS, CodeHostNotFound},
		{"unknown authority", x509.UnknownAuthorityError{}, DomainTLS, CodeCertificateInvalid},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, DomainNetwork, CodeConnectionRefused},
		{"reset", &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, DomainNetwork, CodeConnectionReset},
		{"other op", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, DomainNetwork, CodeUnknown},
		{"opaque", errors.New("weird"), DomainTransport, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := ClassifyTransport(tt.err)
			require.NotNil(t, te)
			assert.Equal(t, tt.domain, te.Domain)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, tt.err.Error(), te.Description)
		})
	}

	assert.Nil(t, ClassifyTransport(nil))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	d := Classify(&WaitTimeoutError{Predicate: "exists", Criteria: "host=example.com"})
	assert.Equal(t, "Expectation Failed", d.Title)
	assert.Contains(t, d.Format(), "host=example.com")

	d = Classify(&StorageError{Kind: UnavailableCollectionRoot, Collection: "Requests"})
	assert.Equal(t, "Storage Unavailable", d.Title)

	d = Classify(fmt.Errorf("compile: %w", ErrInvalidCriteria))
	assert.Equal(t, "Invalid Criteria", d.Title)

	d = Classify(ValidationError{Field: "limit", Message: "must be positive"})
	assert.Equal(t, "Validation Error", d.Title)
	assert.Equal(t, "limit: must be positive", d.Details)

	d = Classify(context.Canceled)
	assert.Equal(t, SeverityInfo, d.Severity)
	assert.Equal(t, "info", d.Severity.String())

	d = Classify(errors.New("mystery"))
	assert.Equal(t, "Unexpected Error", d.Title)
}
