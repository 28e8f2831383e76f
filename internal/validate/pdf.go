package validate

import (
	"bytes"
	"sync"

	"github.com/commons-systems/atelier/internal/files"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disablePDFConfigDir sync.Once

// inspectPDF checks that pdfcpu can read the document structure.
func inspectPDF(file files.File) error {
	disablePDFConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	_, err := api.PDFInfo(bytes.NewReader(file.Data), file.Name, nil, conf)
	return err
}
