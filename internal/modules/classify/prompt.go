package classify

import (
	"fmt"
	"strings"
)

const (
	defaultCompanyTitle = "Empresa sin nombre"
	defaultCompanyIntro = "Sin descripción disponible"

	schemaName = "construction_products"
)

// CompanyContext is the company information appended to the instruction.
type CompanyContext struct {
	Title string
	Intro string
}

func (c CompanyContext) withDefaults() CompanyContext {
	if strings.TrimSpace(c.Title) == "" {
		c.Title = defaultCompanyTitle
	}
	if strings.TrimSpace(c.Intro) == "" {
		c.Intro = defaultCompanyIntro
	}
	return c
}

const systemPrompt = `Eres un asistente experto en catalogar productos para un marketplace dedicado EXCLUSIVAMENTE a construcción, arquitectura, diseño e industria (manufactura).

Las imágenes provienen siempre de publicaciones en redes sociales: anuncios, promociones, banners o vitrinas de marca, casi nunca fichas técnicas.

Extrae ÚNICAMENTE productos o líneas de producto de construcción, arquitectura, diseño interior o industria, aunque aparezcan en formato publicitario.

Inclusión y exclusión:
1. INCLUIR: materiales (aceros, perfiles de aluminio, cementos), herramientas, componentes y tornillería, maquinaria, acabados (pisos, luminarias) y diseño interior.
2. EXCLUIR: productos de otras industrias (moda, alimentos, electrónica de consumo, papelería general).
3. Una publicación o promoción relevante se trata como UN solo producto. El nombre debe ser descriptivo (por ejemplo "Promoción de Pisos Laminados") y la descripción y especificaciones se toman del texto dentro de la imagen.

Reglas por producto:
- product_name: título en español optimizado para SEO, máximo 250 caracteres: [producto genérico] + [material o característica] + [marca] + [dimensiones o modelo]. Para anuncios de marca: "Soluciones de [Producto] [Marca]".
- sku y model: normalmente null en redes sociales.
- price: número si aparece en la imagen, si no null.
- currency: código ISO de 3 letras junto al precio, si no null.
- brand: marca identificada por logo o texto, si no null.
- category: categoría del sector construcción, por ejemplo "Aceros y Metales".
- product_description: párrafo en español para SEO, máximo 1000 caracteres, con beneficios y usos para arquitectos, ingenieros y contratistas.
- specifications: máximo 250 caracteres con formato "Especificación: Valor; Especificación: Valor", si no null.
- product_image: URL de la imagen analizada.

Si no hay ningún producto relevante responde exactamente {"products": []}.`

// userPrompt renders the per-image message with the company context.
func userPrompt(imageURL string, cc CompanyContext) string {
	cc = cc.withDefaults()
	return fmt.Sprintf(
		"Analiza la imagen adjunta (%s).\n\nCONTEXTO DE LA EMPRESA:\n- Nombre de la empresa: %s\n- Descripción de la empresa: %s\n\nUsa este contexto para identificar mejor productos y marcas en la imagen.",
		imageURL, cc.Title, cc.Intro,
	)
}

func nullable(t string) map[string]any {
	return map[string]any{"type": []any{t, "null"}}
}

// productSchema is the strict json_schema for the model output. Strict mode needs every
// property listed as required, so optional fields are nullable instead.
func productSchema() map[string]any {
	product := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"product_name":        map[string]any{"type": "string"},
			"sku":                 nullable("string"),
			"model":               nullable("string"),
			"price":               nullable("number"),
			"currency":            nullable("string"),
			"brand":               nullable("string"),
			"category":            map[string]any{"type": "string"},
			"product_description": map[string]any{"type": "string"},
			"specifications":      nullable("string"),
			"product_image":       nullable("string"),
		},
		"required": []any{
			"product_name", "sku", "model", "price", "currency", "brand",
			"category", "product_description", "specifications", "product_image",
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"products": map[string]any{"type": "array", "items": product},
		},
		"required": []any{"products"},
	}
}
