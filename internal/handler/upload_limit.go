package handler

import "strconv"

func formatUploadLimit(bytes int64) string {
	const mb = 1024 * 1024
	if bytes <= 0 {
		return "0MB"
	}
	value := bytes / mb
	if value <= 0 {
		value = 1
	}
	return strconv.FormatInt(value, 10) + "MB"
}

// multipartOverhead is added to the body limit so that the form framing
// around a file of exactly the limit still fits.
const multipartOverhead = 1 << 20
