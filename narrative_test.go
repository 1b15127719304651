package exflow

import (
	"reflect"
	"testing"
)

func TestNarrative_RoundTripStandard(t *testing.T) {
	blocks := []NarrativeBlock{
		{Subject: "web01.example.edu", Text: "Vendor appliance cannot be patched.\nReplacement scheduled."},
		{Subject: "web02.example.edu", Text: "Same appliance."},
	}

	encoded := EncodeNarrative(ExceptionStandard, blocks)
	expected := "Server: web01.example.edu\nVendor appliance cannot be patched.\nReplacement scheduled.\n\nServer: web02.example.edu\nSame appliance."
	if encoded != expected {
		t.Errorf("Unexpected encoding:\n%s", encoded)
	}

	decoded := DecodeNarrative(encoded)
	if !reflect.DeepEqual(decoded, blocks) {
		t.Errorf("Round trip mismatch: %+v", decoded)
	}
}

func TestNarrative_RoundTripVulnerability(t *testing.T) {
	blocks := []NarrativeBlock{
		{Subject: "SSL Certificate Cannot Be Trusted", Text: "Internal CA only."},
		{Subject: "Vulnerability ID: 51192", Text: ""},
	}

	encoded := EncodeNarrative(ExceptionVulnerability, blocks)
	if encoded != "SSL Certificate Cannot Be Trusted:\nInternal CA only.\n\nVulnerability ID: 51192:\n" {
		t.Errorf("Unexpected encoding %q", encoded)
	}
	if decoded := DecodeNarrative(encoded); !reflect.DeepEqual(decoded, blocks) {
		t.Errorf("Round trip mismatch: %+v", decoded)
	}
}

func TestDecodeNarrative_FreeText(t *testing.T) {
	decoded := DecodeNarrative("Just one paragraph of text")
	if len(decoded) != 1 || decoded[0].Subject != "" || decoded[0].Text != "Just one paragraph of text" {
		t.Errorf("Expected single anonymous block, got %+v", decoded)
	}
	if DecodeNarrative("") != nil {
		t.Error("Expected nil for empty text")
	}
}

func TestDecodeNarrative_BlankLineInsideBody(t *testing.T) {
	text := "Server: db01\nfirst paragraph\n\nsecond paragraph"
	decoded := DecodeNarrative(text)
	if len(decoded) != 1 {
		t.Fatalf("Expected one block, got %d", len(decoded))
	}
	if decoded[0].Text != "first paragraph\n\nsecond paragraph" {
		t.Errorf("Unexpected body %q", decoded[0].Text)
	}
}
