package utils

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// RepairJSON fixes the common damage in exported extraction files:
// trailing commas, single quotes, unquoted keys, comments, stray markdown
// fences around the payload.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	return repaired, nil
}

// ParseHJSONToStruct parses human-maintained hjson (comments, unquoted
// keys, optional commas) directly into a struct.
func ParseHJSONToStruct(data string, schema interface{}) error {
	if err := hjson.Unmarshal([]byte(data), schema); err != nil {
		return fmt.Errorf("hjson unmarshal failed: %w", err)
	}
	return nil
}

// SmartParse tries progressively more tolerant strategies to decode input
// into schema: strict JSON, then repaired JSON, then hjson. Returns the
// text that finally parsed so callers can persist the normalized form.
func SmartParse(input string, schema interface{}) (string, error) {
	// 1. Strict JSON.
	if err := json.Unmarshal([]byte(input), schema); err == nil {
		return input, nil
	}

	// 2. Repaired JSON.
	if repaired, err := RepairJSON(input); err == nil {
		if err := json.Unmarshal([]byte(repaired), schema); err == nil {
			return repaired, nil
		}
	}

	// 3. Hjson, the most lenient.
	var loose interface{}
	if err := hjson.Unmarshal([]byte(input), &loose); err == nil {
		if jsonBytes, err := json.Marshal(loose); err == nil {
			if err := json.Unmarshal(jsonBytes, schema); err == nil {
				return string(jsonBytes), nil
			}
		}
	}

	return "", fmt.Errorf("all parsing strategies failed for input")
}
