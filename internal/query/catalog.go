package query

// areas は詳細登録フォームの「活動分野」の選択肢。順序は表示順。
var areas = []string{
	"Atenção Básica",
	"Vigilância em Saúde",
	"Urgência e Emergência",
	"Gestão",
	"Hospitalar",
	"Outra",
}

// setores は詳細登録フォームの「部署」の選択肢。順序は表示順。
var setores = []string{
	"Gabinete",
	"Administração",
	"RH",
	"Compras",
	"Almoxarifado",
	"TI",
	"Transporte",
	"Farmácia",
	"Faturamento",
	"Regulação",
	"Outra",
}
