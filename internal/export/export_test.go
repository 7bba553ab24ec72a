package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bookintake/internal/model"
)

func sampleRows() []model.Submission {
	copyright := "https://x/images/copyrights/1_abc.jpg"
	return []model.Submission{
		{
			ID:            2,
			DeviceSerial:  "DEV002",
			PhoneNumber:   "13900139000",
			ISBN:          "9787020002207",
			CoverImageURL: "https://x/images/covers/2_def.jpg",
			CreatedAt:     time.Date(2024, 5, 2, 16, 30, 0, 0, time.UTC),
		},
		{
			ID:                1,
			DeviceSerial:      "DEV001",
			PhoneNumber:       "13800138000",
			ISBN:              "9787111111111",
			CoverImageURL:     "https://x/images/covers/1_abc.jpg",
			CopyrightImageURL: &copyright,
			CreatedAt:         time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"xlsx", FormatXLSX, false},
		{"Excel", FormatXLSX, false},
		{" parquet ", FormatParquet, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilename(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "submissions_2024-05-01.xlsx", Filename(FormatXLSX, now, time.UTC))
	assert.Equal(t, "submissions_2024-05-02.parquet", Filename(FormatParquet, now, shanghai))
}

func TestWriteXLSX(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleRows(), shanghai))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"1", "DEV002", "13900139000", "9787020002207", "https://x/images/covers/2_def.jpg", "", "2024-05-03 00:30:00"}, rows[1])
	assert.Equal(t, "https://x/images/copyrights/1_abc.jpg", rows[2][5])
	assert.Equal(t, "2", rows[2][0])

	width, err := f.GetColWidth(SheetName, "E")
	require.NoError(t, err)
	assert.Equal(t, 50.0, width)

	styleID, err := f.GetCellStyle(SheetName, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteParquet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatParquet, sampleRows(), time.UTC))

	data := buf.Bytes()
	got, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(1), got[0].No)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Nil(t, got[0].CopyrightImageURL)
	assert.Equal(t, "2024-05-02 16:30:00", got[0].SubmittedAt)

	require.NotNil(t, got[1].CopyrightImageURL)
	assert.Equal(t, "https://x/images/copyrights/1_abc.jpg", *got[1].CopyrightImageURL)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).UnixMilli(), got[1].SubmittedAtUnixMs)
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Format("csv"), nil, time.UTC))
}
