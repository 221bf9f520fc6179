package model

type Contact struct {
	Phone   string `json:"phone"`
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
}
