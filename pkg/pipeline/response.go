package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Response is what a terminating stage hands back to the pipeline driver.
// Either Body or Stream is set; Stream takes precedence and is copied to the
// client without buffering.
type Response struct {
	// Status is the HTTP status code.
	Status int

	// Header holds response headers to send.
	Header http.Header

	// Body is a fully buffered response body.
	Body []byte

	// Stream is an unbuffered response body. Write closes it.
	Stream io.ReadCloser
}

// ErrorBody is the JSON body of a rejection produced by a stage.
type ErrorBody struct {
	Error string `json:"error"`
}

// MessageBody is the JSON body used by the message publishing stage.
type MessageBody struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// JSON builds a buffered JSON response.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &Response{Status: status, Header: h, Body: body}
}

// Error builds a {"error": message} response.
func Error(status int, message string) *Response {
	return JSON(status, ErrorBody{Error: message})
}

// Write sends the response to w. Extra headers are applied first so the
// response's own headers win on collision.
func (r *Response) Write(w http.ResponseWriter, extra http.Header) (int64, error) {
	dst := w.Header()
	for k, vals := range extra {
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
	for k, vals := range r.Header {
		dst[k] = append([]string(nil), vals...)
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if r.Stream == nil {
		n, err := w.Write(r.Body)
		return int64(n), err
	}

	defer r.Stream.Close()
	return copyFlush(w, r.Stream)
}

// copyFlush copies src to w and flushes after every chunk so that streamed
// upstream responses reach the client as they arrive.
func copyFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			total += int64(m)
			if werr != nil {
				return total, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			slog.Debug("response stream ended with error", "error", rerr)
			return total, rerr
		}
	}
}
