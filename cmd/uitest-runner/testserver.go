package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

// validationPage has a button whose click handler writes into #test-output.
const validationPage = `<!DOCTYPE html>
<html>
<head><title>Browser validation</title></head>
<body>
    <button id="test-button">Click Me</button>
    <div id="test-output"></div>
    <script>
        document.getElementById('test-button').addEventListener('click', function() {
            document.getElementById('test-output').textContent = 'Button clicked!';
        });
    </script>
</body>
</html>`

// StartTestServer serves the browser validation page on port (0 picks a free
// port) and returns once the page answers. The returned URL points at it.
func StartTestServer(port int) (*http.Server, string, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	url := "http://" + listener.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(validationPage))
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Test server error: %v\n", err)
		}
	}()

	client := &http.Client{Timeout: time.Second}
	ready := wait.Waiter{Timeout: 5 * time.Second, Interval: 50 * time.Millisecond}.WithMessage("validation page at " + url)
	err = wait.True(context.Background(), ready, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK, nil
	})
	if err != nil {
		server.Close()
		return nil, "", err
	}

	return server, url, nil
}
