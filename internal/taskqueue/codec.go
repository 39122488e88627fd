package taskqueue

import "encoding/json"

// EncodeMessage serializes a Message for storage in a queue backend.
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
