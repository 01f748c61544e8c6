package transporttests

import "testing"

import "github.com/sirgallo/tso/pkg/transport"


func TestParseEndpoint(t *testing.T) {
	endpoint, parseErr := transport.ParseEndpoint("tcp+k2rpc+127.0.0.1:13000")
	if parseErr != nil { t.Fatalf("parse failed: %s\n", parseErr.Error()) }

	if endpoint.Proto != "tcp+k2rpc" {
		t.Errorf("actual proto not equal to expected: actual(%s), expected(%s)\n", endpoint.Proto, "tcp+k2rpc")
	}

	if endpoint.Host != "127.0.0.1" {
		t.Errorf("actual host not equal to expected: actual(%s), expected(%s)\n", endpoint.Host, "127.0.0.1")
	}

	if endpoint.Port != "13000" {
		t.Errorf("actual port not equal to expected: actual(%s), expected(%s)\n", endpoint.Port, "13000")
	}

	if endpoint.URL() != "tcp+k2rpc+127.0.0.1:13000" {
		t.Errorf("canonical url not equal to original: actual(%s)\n", endpoint.URL())
	}
}

func TestParseRRDMAEndpoint(t *testing.T) {
	endpoint, parseErr := transport.ParseEndpoint("rrdma+10.0.0.1:9000")
	if parseErr != nil { t.Fatalf("parse failed: %s\n", parseErr.Error()) }

	if endpoint.Proto != "rrdma" {
		t.Errorf("actual proto not equal to expected: actual(%s), expected(%s)\n", endpoint.Proto, "rrdma")
	}

	if endpoint.Address() != "10.0.0.1:9000" {
		t.Errorf("actual address not equal to expected: actual(%s), expected(%s)\n", endpoint.Address(), "10.0.0.1:9000")
	}
}

func TestParseInvalidEndpoints(t *testing.T) {
	invalidURLs := []string{
		"127.0.0.1:13000",
		"http+127.0.0.1:13000",
		"rrdma+127.0.0.1",
		"rrdma+:13000",
	}

	for _, url := range invalidURLs {
		_, parseErr := transport.ParseEndpoint(url)
		if parseErr == nil { t.Errorf("expected parse error for url: %s\n", url) }
	}
}
