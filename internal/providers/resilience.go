package providers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// newBreaker builds the per-client circuit breaker. An open breaker reads as
// "no data available this cycle" upstream of the orchestrator, the same as a
// timeout or a bad status.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes req behind the circuit breaker and returns the response
// body for a 2xx status. Any other status is an error; the caller decides how
// to degrade.
func doRequest(client *http.Client, cb *gobreaker.CircuitBreaker, req *http.Request) (io.ReadCloser, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, errors.New("unexpected result type from circuit breaker")
	}
	return resp.Body, nil
}
