package provider

import (
	"bytes"
	"io"
	"net/http"

	"github.com/adflow/pipeline/internal/pipeline/errs"
)

// newJSONReader wraps a marshaled JSON body for an outbound request.
func newJSONReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// readResponseBody drains an HTTP response body, classifying read failures
// as transient so the retry loop treats them the same as a dropped
// connection.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "", err)
	}
	return body, nil
}
