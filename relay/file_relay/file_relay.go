package file_relay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/meetd/meetd/relay"

	"github.com/google/uuid"
	"github.com/juju/fslock"
)

var _ relay.Relay = (*FileRelay)(nil)

// FileRelay is an append-only JSON-lines file shared between local
// agents. The fslock serializes writers across processes; offsets are
// line numbers.
type FileRelay struct {
	lockFile *fslock.Lock

	dataFile *os.File
}

const (
	eol             = '\n'
	defaultLockFile = "/tmp/meetd_relay_lock"
)

func countLines(r io.Reader) uint64 {
	var count uint64
	fileScanner := bufio.NewScanner(r)

	for fileScanner.Scan() {
		count++
	}

	return count
}

// NewFileRelay inits an append-only file relay.
// It takes two arguments: filename - path to a data file, lockFilename (optional) - path to a lock file
func NewFileRelay(filename string, lockFilename ...string) (relay.Relay, error) {
	var (
		fr  FileRelay
		err error
	)
	if len(lockFilename) > 0 {
		fr.lockFile = fslock.New(lockFilename[0])
	} else {
		fr.lockFile = fslock.New(defaultLockFile)
	}

	if fr.dataFile, err = os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644); err != nil {
		return nil, fmt.Errorf("failed to open a data file: %v", err)
	}
	return &fr, nil
}

// Send appends a message and returns it with its id and offset filled.
func (fr *FileRelay) Send(m relay.Message) (relay.Message, error) {
	if err := fr.lockFile.Lock(); err != nil {
		return m, fmt.Errorf("failed to lock a file: %v", err)
	}
	defer fr.lockFile.Unlock()

	m.ID = uuid.New().String()

	if _, err := fr.dataFile.Seek(0, 0); err != nil {
		return m, fmt.Errorf("failed to seek a data file: %v", err)
	}
	m.Offset = countLines(fr.dataFile)

	data, err := json.Marshal(m)
	if err != nil {
		return m, fmt.Errorf("failed to marshal a message: %v", err)
	}
	data = append(data, eol)
	if _, err = fr.dataFile.Write(data); err != nil {
		return m, fmt.Errorf("failed to write a message: %v", err)
	}
	return m, nil
}

// GetMessages returns every message at or past the given offset.
func (fr *FileRelay) GetMessages(offset uint64) ([]relay.Message, error) {
	var msgs []relay.Message

	if _, err := fr.dataFile.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to seek a data file: %v", err)
	}

	reader := bufio.NewReader(fr.dataFile)
	var lineNum uint64
	for {
		row, err := reader.ReadBytes(eol)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read a message: %v", err)
		}

		if lineNum < offset {
			lineNum++
			continue
		}

		var m relay.Message
		if err = json.Unmarshal(row, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal a message: %v", err)
		}
		m.Offset = lineNum
		lineNum++
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (fr *FileRelay) Close() error {
	return fr.dataFile.Close()
}
