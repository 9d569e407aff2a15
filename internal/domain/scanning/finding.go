package scanning

// SqlFinding is one SQL-injection vector reported by the injection tool.
type SqlFinding struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}
