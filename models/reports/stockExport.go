package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/shopstock_backend/models"
)

// ExportMergedStockXLSX writes the central+branch stock projection as an
// xlsx workbook.
func ExportMergedStockXLSX(ctx context.Context, inv *models.Inventory, shopId string, w io.Writer) error {

	rows, err := inv.MergedStockView(ctx, shopId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Stock"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	f.DeleteSheet("Sheet1")

	// Add headers
	f.SetCellValue(sheet, "A1", "ProductNo")
	f.SetCellValue(sheet, "B1", "ProductName")
	f.SetCellValue(sheet, "C1", "Brand")
	f.SetCellValue(sheet, "D1", "Model")
	f.SetCellValue(sheet, "E1", "CentralQty")
	f.SetCellValue(sheet, "F1", "BranchQty")
	f.SetCellValue(sheet, "G1", "TotalQty")
	f.SetCellValue(sheet, "H1", "UnitCost")

	// Add data
	for i, d := range rows {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+rowNo, d.ProductNo)
		f.SetCellValue(sheet, "B"+rowNo, d.ProductName)
		f.SetCellValue(sheet, "C"+rowNo, d.Brand)
		f.SetCellValue(sheet, "D"+rowNo, d.Model)
		f.SetCellValue(sheet, "E"+rowNo, d.CentralQuantity.InexactFloat64())
		f.SetCellValue(sheet, "F"+rowNo, d.BranchQuantity.InexactFloat64())
		f.SetCellValue(sheet, "G"+rowNo, d.TotalQuantity.InexactFloat64())
		f.SetCellValue(sheet, "H"+rowNo, d.UnitCost.InexactFloat64())
	}

	return f.Write(w)
}
