package scanning

// Alert is a vulnerability finding reported by the engine's active scan.
// Field names follow the engine's JSON representation.
type Alert struct {
	ID              string            `json:"id"`
	PluginID        string            `json:"pluginId"`
	AlertRef        string            `json:"alertRef"`
	Alert           string            `json:"alert"`
	Name            string            `json:"name"`
	Risk            string            `json:"risk"`
	Confidence      string            `json:"confidence"`
	Description     string            `json:"description"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Param           string            `json:"param"`
	Attack          string            `json:"attack"`
	Evidence        string            `json:"evidence"`
	Other           string            `json:"other"`
	Solution        string            `json:"solution"`
	Reference       string            `json:"reference"`
	CWEID           string            `json:"cweid"`
	WASCID          string            `json:"wascid"`
	SourceID        string            `json:"sourceid"`
	MessageID       string            `json:"messageId"`
	SourceMessageID int               `json:"sourceMessageId"`
	InputVector     string            `json:"inputVector"`
	Tags            map[string]string `json:"tags"`
}
