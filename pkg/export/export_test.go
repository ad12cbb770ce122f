package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Enquiries",
		Headers: []string{"Applicant", "Grade", "Status"},
		Rows: [][]string{
			{"Rina", "10", "VERIFIED"},
			{"Andi, Jr.", "11", "ACTIVE"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := RenderCSV(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Applicant,Grade,Status\nRina,10,VERIFIED\n\"Andi, Jr.\",11,ACTIVE\n", string(out))
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"only one"})
	_, err := RenderCSV(data)
	require.Error(t, err)
	_, err = RenderXLSX(data)
	require.Error(t, err)
}

func TestRenderXLSX(t *testing.T) {
	out, err := RenderXLSX(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Enquiries")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Applicant", "Grade", "Status"}, rows[0])
	assert.Equal(t, "Andi, Jr.", rows[2][0])
}

func TestRenderChecklistPDF(t *testing.T) {
	out, err := RenderChecklistPDF(Checklist{
		Title:  "Document checklist",
		Fields: []Field{{Label: "Applicant", Value: "Rina"}},
		Table:  sampleDataset(),
		Footer: "Generated for review",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
