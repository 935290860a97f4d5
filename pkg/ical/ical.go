package ical

import (
	"bytes"
	"errors"

	goical "github.com/emersion/go-ical"
)

// DetectICSComponent returns the name of the first VEVENT/VTODO/VJOURNAL
// component in a calendar-data blob, or an error when it holds none.
func DetectICSComponent(data []byte) (string, error) {
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return "", err
	}
	for _, child := range cal.Children {
		if child.Name == goical.CompEvent || child.Name == goical.CompToDo || child.Name == goical.CompJournal {
			return child.Name, nil
		}
	}
	return "", errors.New("unsupported component")
}
