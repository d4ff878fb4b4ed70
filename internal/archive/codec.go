package archive

import (
	"encoding/json"
	"errors"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (RunRecord, error) {
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

func EncodeHistory(history []GenerationRecord) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeHistory(data []byte) ([]GenerationRecord, error) {
	var history []GenerationRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeSolutions(solutions []SolutionRecord) ([]byte, error) {
	return json.Marshal(solutions)
}

func DecodeSolutions(data []byte) ([]SolutionRecord, error) {
	var solutions []SolutionRecord
	if err := json.Unmarshal(data, &solutions); err != nil {
		return nil, err
	}
	for _, solution := range solutions {
		if err := checkVersion(solution.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return solutions, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
