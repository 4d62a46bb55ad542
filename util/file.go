package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// maxJsonSize caps files read by ReadJson; everything read here is a small state or lock file
const maxJsonSize = 1 << 20

// ReadJson reads JSON file and maps to a provided interface
func ReadJson(file string, res interface{}) (interface{}, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("failed to close file %s: %v", file, err)
		}
	}()

	bs, err := io.ReadAll(io.LimitReader(f, maxJsonSize))
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(bs, res); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	return res, nil
}
