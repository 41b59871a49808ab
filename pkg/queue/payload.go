package queue

import "encoding/json"

// DecodePayload unmarshals the job payload into v.
func DecodePayload(job *Job, v interface{}) error {
	return json.Unmarshal(job.Payload, v)
}
